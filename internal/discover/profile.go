package discover

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile describes the URL shapes of one storefront platform.
type Profile struct {
	Name string `yaml:"name"`
	// ProductPath matches a canonical product path.
	ProductPath string `yaml:"product_path"`
	// CollectionPath matches a collection-scoped product path. Its capture
	// groups are substituted into CanonicalPath.
	CollectionPath string `yaml:"collection_path"`
	CanonicalPath  string `yaml:"canonical_path"`
	// LinkPrefix is the path fragment used to spot candidate links quickly.
	LinkPrefix string `yaml:"link_prefix"`
	// JSONKeys are object keys whose string values may hold product URLs in
	// inline JSON.
	JSONKeys []string `yaml:"json_keys"`

	productRe    *regexp.Regexp
	collectionRe *regexp.Regexp
}

// DefaultProfile matches Shopify-style storefronts.
func DefaultProfile() *Profile {
	p := &Profile{
		Name:           "shopify",
		ProductPath:    `^/products/[^/]+$`,
		CollectionPath: `^/collections/[^/]+/products/([^/]+)$`,
		CanonicalPath:  `/products/$1`,
		LinkPrefix:     "/products/",
		JSONKeys:       []string{"url", "href", "product_url"},
	}
	if err := p.compile(); err != nil {
		panic(err)
	}
	return p
}

// LoadProfile reads a YAML profile from path. Empty fields fall back to the
// default profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "discover: read profile %s", path)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile.
func ParseProfile(data []byte) (*Profile, error) {
	def := DefaultProfile()
	p := *def
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "discover: parse profile")
	}
	if p.ProductPath == "" {
		p.ProductPath = def.ProductPath
	}
	if len(p.JSONKeys) == 0 {
		p.JSONKeys = def.JSONKeys
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) compile() error {
	var err error
	if p.productRe, err = regexp.Compile(p.ProductPath); err != nil {
		return eris.Wrap(err, "discover: product_path")
	}
	p.collectionRe = nil
	if p.CollectionPath != "" {
		if p.collectionRe, err = regexp.Compile(p.CollectionPath); err != nil {
			return eris.Wrap(err, "discover: collection_path")
		}
	}
	return nil
}

// canonicalPath rewrites a collection-scoped path to its product path and
// reports whether the result is a product path.
func (p *Profile) canonicalPath(path string) (string, bool) {
	if p.collectionRe != nil && p.CanonicalPath != "" {
		if m := p.collectionRe.FindStringSubmatchIndex(path); m != nil {
			path = string(p.collectionRe.ExpandString(nil, p.CanonicalPath, path, m))
		}
	}
	return path, p.productRe.MatchString(path)
}
