package quirks

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

const (
	// legacy descriptor size used by the OUI heuristic
	HeuristicDescriptorSize = 283
	// OUI mask identifying GameSir Nova style clones
	ouiMaskGameSirNova = 0x28
)

//go:embed rules.toml
var builtinRules []byte

// ProductRule applies to every unit of one product id.
type ProductRule struct {
	Product uint16 `toml:"product"`
	Flags   Set    `toml:"flags"`
	Comment string `toml:"comment"`
}

// Rule matches a name prefix or an address prefix. An empty field never
// matches; a rule with both fields set needs both to match.
type Rule struct {
	Name    string `toml:"name"`
	OUI     string `toml:"oui"`
	Flags   Set    `toml:"flags"`
	Comment string `toml:"comment"`
}

func (r Rule) matches(dev Device) bool {
	if r.Name == "" && r.OUI == "" {
		return false
	}
	if r.Name != "" && !strings.HasPrefix(dev.Name, r.Name) {
		return false
	}
	if r.OUI != "" && !strings.HasPrefix(strings.ToUpper(dev.Address), strings.ToUpper(r.OUI)) {
		return false
	}
	return true
}

// Table is the immutable rule set. Build one with Load or Builtin and share
// it between devices.
type Table struct {
	Products []ProductRule `toml:"product"`
	Rules    []Rule        `toml:"rule"`
}

// Device carries the identity fields the resolver looks at.
type Device struct {
	Product        uint16
	Name           string
	Address        string
	DescriptorSize int
}

// Load decodes a rule table in TOML form.
func Load(data []byte) (*Table, error) {
	var t Table
	if _, err := toml.Decode(string(data), &t); err != nil {
		return nil, fmt.Errorf("decode quirk rules: %w", err)
	}
	return &t, nil
}

var (
	builtinOnce  sync.Once
	builtinTable *Table
)

// Builtin returns the table compiled into the binary.
func Builtin() *Table {
	builtinOnce.Do(func() {
		t, err := Load(builtinRules)
		if err != nil {
			panic(err)
		}
		builtinTable = t
	})
	return builtinTable
}

// Supported reports whether the product id is listed in the table.
func (t *Table) Supported(product uint16) bool {
	_, ok := t.product(product)
	return ok
}

func (t *Table) product(product uint16) (ProductRule, bool) {
	for _, p := range t.Products {
		if p.Product == product {
			return p, true
		}
	}
	return ProductRule{}, false
}

// Resolve computes the quirk set for dev. Overrides are "MAC{:|+|-}flags"
// strings; only the first one matching the device address is used, and
// malformed entries are logged and skipped.
func (t *Table) Resolve(dev Device, overrides []string, log *zap.Logger) Set {
	if log == nil {
		log = zap.NewNop()
	}

	var s Set
	if p, ok := t.product(dev.Product); ok {
		s |= p.Flags
	}
	for _, r := range t.Rules {
		if r.matches(dev) {
			s |= r.Flags
		}
	}

	var ov *Override
	for _, raw := range overrides {
		o, err := ParseOverride(raw)
		if err != nil {
			log.Warn("ignoring quirk override", zap.Error(err))
			continue
		}
		if o.Matches(dev.Address) {
			ov = &o
			break
		}
	}

	if ov != nil {
		switch ov.Op {
		case OpReplace:
			return ov.Flags
		case OpAdd:
			s = ov.Apply(s)
		}
	}

	if !s.NoHeuristics() && dev.DescriptorSize == HeuristicDescriptorSize {
		if oui, ok := firstOctet(dev.Address); ok && oui&ouiMaskGameSirNova == ouiMaskGameSirNova {
			log.Info("heuristic match, treating as simple clone", zap.String("address", dev.Address))
			s |= SimpleClone
		}
	}

	if ov != nil && ov.Op == OpRemove {
		s = ov.Apply(s)
	}
	return s
}

func firstOctet(address string) (byte, bool) {
	if len(address) < 2 {
		return 0, false
	}
	v, err := parseHex(address[:2])
	if err != nil {
		return 0, false
	}
	return byte(v), true
}
