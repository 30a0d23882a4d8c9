package node

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyExpr builds the rmw key expression for a service of the node:
// <domain>/<namespace/name/service>/<type>/<hash>, with no leading slash
// on the name part.
func KeyExpr(domainID uint32, fqName, service, typeName, hash string) string {
	name := strings.Trim(fqName, "/")
	service = strings.Trim(strings.TrimPrefix(service, "~"), "/")
	return fmt.Sprintf("%d/%s/%s/%s/%s", domainID, name, service, typeName, hash)
}

// ParsedKeyExpr is a key expression split into its parts.
type ParsedKeyExpr struct {
	DomainID uint32
	// Name is the service's fully qualified name without a leading slash.
	Name     string
	TypeName string
	Hash     string
}

// ParseKeyExpr splits a key expression produced by KeyExpr.
func ParseKeyExpr(ke string) (ParsedKeyExpr, error) {
	first := strings.Index(ke, "/")
	last := strings.LastIndex(ke, "/")
	if first <= 0 || last == first {
		return ParsedKeyExpr{}, fmt.Errorf("node: malformed key expression %q", ke)
	}
	domain, err := strconv.ParseUint(ke[:first], 10, 32)
	if err != nil {
		return ParsedKeyExpr{}, fmt.Errorf("node: key expression domain %q: %w", ke[:first], err)
	}
	out := ParsedKeyExpr{DomainID: uint32(domain)}
	out.Hash = ke[last+1:]
	rest := ke[first+1 : last]
	mid := strings.LastIndex(rest, "/")
	if mid <= 0 {
		return ParsedKeyExpr{}, fmt.Errorf("node: malformed key expression %q", ke)
	}
	out.Name = rest[:mid]
	out.TypeName = rest[mid+1:]
	return out, nil
}
