package shell

import (
	"github.com/google/uuid"

	"swimguard/internal/swim"
)

// NewLocalIdentity mints a Node for this process: the given advertise
// address plus a freshly-generated UUID generation tag. The tag tells
// process lifetimes apart in logs and on the wire; the engine keys members
// by address alone, so a node that restarts at the same address takes over
// its previous Member record.
func NewLocalIdentity(advertiseAddr string) swim.Node {
	return swim.Node{Addr: advertiseAddr, Gen: uuid.NewString()}
}
