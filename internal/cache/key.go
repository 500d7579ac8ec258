package cache

import (
	"sort"
	"strconv"
	"strings"
)

// Key namespaces. Every cached value lives under exactly one of these, so
// invalidation can target a whole family with Namespace.Pattern().
const (
	NSProductList    Namespace = "product_list"
	NSCategoryList   Namespace = "category_list"
	NSCategory       Namespace = "category"
	NSSlug           Namespace = "slug"
	NSSearchProducts Namespace = "search_products"
	NSSimilar        Namespace = "similar_products"
	NSUserCart       Namespace = "user_cart"
	NSReviews        Namespace = "product_reviews"
)

type Namespace string

// Pattern is the glob matching every key in the namespace, for DeletePattern.
func (n Namespace) Pattern() string { return string(n) + "_*" }

// Key is a cache address built from a namespace and an ordered parameter
// tuple. Parameters are always joined with an explicit separator, so two
// distinct tuples can never render to the same string the way ad-hoc
// concatenation can.
type Key struct {
	ns    Namespace
	parts []string
}

func NewKey(ns Namespace) Key { return Key{ns: ns} }

func (k Key) Str(s string) Key {
	k.parts = append(append([]string(nil), k.parts...), s)
	return k
}

func (k Key) Int(i int64) Key { return k.Str(strconv.FormatInt(i, 10)) }

// Map appends a map rendered as {k=v,...} with keys sorted, so the same
// filter set always produces the same key regardless of iteration order.
func (k Key) Map(m map[string]string) Key {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(m[key])
	}
	b.WriteByte('}')
	return k.Str(b.String())
}

func (k Key) String() string {
	if len(k.parts) == 0 {
		return string(k.ns)
	}
	return string(k.ns) + "_" + strings.Join(k.parts, "_")
}
