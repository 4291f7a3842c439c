// Package identity derives and holds a component's stable {type, id} pair.
package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identity is the stable {type, id} pair every metric and log record is
// labelled by. It never changes for the process lifetime.
type Identity struct {
	Type string
	ID   string
}

// String implements fmt.Stringer for log lines.
func (i Identity) String() string {
	return fmt.Sprintf("%s.%s", i.Type, i.ID)
}

// Derive computes ComponentIdentity per the following rule:
//
//  1. explicitID, if non-empty, is used as-is;
//  2. else if name is non-empty, UUIDv5(NameSpaceURL, "detectmate/<type>/<name>");
//  3. else UUIDv5(NameSpaceURL, "detectmate/<type>|<engineAddr>|<outAddrsJoined>").
//
// The rule is deterministic so a restarted process recovers the same id.
func Derive(componentType, explicitID, name, engineAddr string, outAddrs []string) Identity {
	if explicitID != "" {
		return Identity{Type: componentType, ID: explicitID}
	}

	if name != "" {
		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("detectmate/%s/%s", componentType, name)))
		return Identity{Type: componentType, ID: id.String()}
	}

	base := fmt.Sprintf("%s|%s|%s", componentType, engineAddr, strings.Join(outAddrs, ","))
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("detectmate/"+base))
	return Identity{Type: componentType, ID: id.String()}
}
