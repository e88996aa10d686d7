package reader

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// feedPrefixPattern matches identifiers that already carry a feed-scoped
// prefix, e.g. "f3_SKU123". Such codes were produced by an earlier run (or an
// upstream generator) and must be used verbatim: re-prefixing would mint a
// second identity for the same item.
var feedPrefixPattern = regexp.MustCompile(`^f\d+_`)

// IdentityResolver derives the canonical catalog identifier for one offer.
// The resolution must be deterministic across runs, so the same underlying
// item always maps to the same remote target.
type IdentityResolver interface {
	// Resolve returns the canonical ID for an offer, or false when the offer
	// carries nothing usable to identify it.
	Resolve(feedIndex int, vendorCode, nativeID string, element []byte) (string, bool)
}

// prefixedResolver implements the ordered fallback chain: vendor code, then
// the element's native id attribute, then a content hash of the element
// itself so that every offer still gets some stable identity.
type prefixedResolver struct{}

// NewIdentityResolver returns the default resolver.
func NewIdentityResolver() IdentityResolver {
	return prefixedResolver{}
}

func (prefixedResolver) Resolve(feedIndex int, vendorCode, nativeID string, element []byte) (string, bool) {
	vendorCode = strings.TrimSpace(vendorCode)
	nativeID = strings.TrimSpace(nativeID)

	if feedPrefixPattern.MatchString(vendorCode) {
		return vendorCode, true
	}
	if feedPrefixPattern.MatchString(nativeID) {
		return nativeID, true
	}

	base := vendorCode
	if base == "" {
		base = nativeID
	}
	if base == "" && len(element) > 0 {
		sum := md5.Sum(element)
		base = hex.EncodeToString(sum[:])
	}
	if base == "" {
		return "", false
	}

	return fmt.Sprintf("f%d_%s", feedIndex, base), true
}
