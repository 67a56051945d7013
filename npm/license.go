package npm

import (
	"context"
	"fmt"
	"strings"

	"github.com/petal-labs/npmsentinel/fanout"
	"github.com/petal-labs/npmsentinel/report"
	"github.com/petal-labs/npmsentinel/tool"
)

// licenseCategory orders categories from least to most restrictive.
type licenseCategory int

const (
	licensePermissive licenseCategory = iota
	licenseWeakCopyleft
	licenseStrongCopyleft
	licenseProprietary
	licenseUnknown
)

func (c licenseCategory) String() string {
	switch c {
	case licensePermissive:
		return "permissive"
	case licenseWeakCopyleft:
		return "weak copyleft"
	case licenseStrongCopyleft:
		return "strong copyleft"
	case licenseProprietary:
		return "proprietary"
	default:
		return "unknown"
	}
}

var permissiveLicenses = map[string]bool{
	"MIT": true, "ISC": true, "BSD-2-CLAUSE": true, "BSD-3-CLAUSE": true,
	"APACHE-2.0": true, "0BSD": true, "UNLICENSE": true, "CC0-1.0": true,
	"ZLIB": true, "BLUEOAK-1.0.0": true, "PYTHON-2.0": true, "WTFPL": true,
	"CC-BY-4.0": true, "BSL-1.0": true, "MIT-0": true, "ARTISTIC-2.0": true,
}

// classifyLicense maps an SPDX expression to a category. For "OR" the
// consumer may pick, so the least restrictive option wins; for "AND" the
// most restrictive applies. AND binds tighter than OR and parentheses group.
// A malformed expression is unknown.
func classifyLicense(expr string) licenseCategory {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return licenseUnknown
	}
	upper := strings.ToUpper(expr)
	if upper == "UNLICENSED" || strings.HasPrefix(upper, "SEE LICENSE IN") {
		return licenseProprietary
	}

	p := &licenseParser{tokens: tokenizeLicense(expr)}
	category, ok := p.parseOr()
	if !ok || p.pos != len(p.tokens) {
		return licenseUnknown
	}
	return category
}

func tokenizeLicense(expr string) []string {
	expr = strings.ReplaceAll(expr, "(", " ( ")
	expr = strings.ReplaceAll(expr, ")", " ) ")
	return strings.Fields(expr)
}

// licenseParser is a recursive-descent parser over SPDX tokens:
//
//	or   = and { "OR" and }
//	and  = atom { "AND" atom }
//	atom = "(" or ")" | id [ "WITH" exception ]
type licenseParser struct {
	tokens []string
	pos    int
}

func (p *licenseParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *licenseParser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *licenseParser) parseOr() (licenseCategory, bool) {
	best, ok := p.parseAnd()
	if !ok {
		return licenseUnknown, false
	}
	for strings.EqualFold(p.peek(), "OR") {
		p.next()
		c, ok := p.parseAnd()
		if !ok {
			return licenseUnknown, false
		}
		best = min(best, c)
	}
	return best, true
}

func (p *licenseParser) parseAnd() (licenseCategory, bool) {
	worst, ok := p.parseAtom()
	if !ok {
		return licenseUnknown, false
	}
	for strings.EqualFold(p.peek(), "AND") {
		p.next()
		c, ok := p.parseAtom()
		if !ok {
			return licenseUnknown, false
		}
		worst = max(worst, c)
	}
	return worst, true
}

func (p *licenseParser) parseAtom() (licenseCategory, bool) {
	tok := p.next()
	switch {
	case tok == "(":
		c, ok := p.parseOr()
		if !ok || p.next() != ")" {
			return licenseUnknown, false
		}
		return c, true
	case tok == "", tok == ")", isLicenseOperator(tok):
		return licenseUnknown, false
	}
	if strings.EqualFold(p.peek(), "WITH") {
		p.next()
		if exception := p.next(); exception == "" || exception == "(" || exception == ")" || isLicenseOperator(exception) {
			return licenseUnknown, false
		}
	}
	return classifyLicenseID(tok), true
}

func isLicenseOperator(tok string) bool {
	switch strings.ToUpper(tok) {
	case "AND", "OR", "WITH":
		return true
	}
	return false
}

func classifyLicenseID(raw string) licenseCategory {
	id := strings.TrimSuffix(strings.ToUpper(raw), "+")
	id = strings.TrimSuffix(id, "-ONLY")
	id = strings.TrimSuffix(id, "-OR-LATER")
	switch {
	case permissiveLicenses[id]:
		return licensePermissive
	case strings.HasPrefix(id, "AGPL"), strings.HasPrefix(id, "GPL"), strings.HasPrefix(id, "SSPL"):
		return licenseStrongCopyleft
	case strings.HasPrefix(id, "LGPL"), strings.HasPrefix(id, "MPL"), strings.HasPrefix(id, "EPL"),
		strings.HasPrefix(id, "CDDL"), strings.HasPrefix(id, "EUPL"):
		return licenseWeakCopyleft
	default:
		return licenseUnknown
	}
}

type licenseInfo struct {
	version  string
	license  string
	category licenseCategory
}

// LicenseCompatibility implements npmLicenseCompatibility.
func (s *Service) LicenseCompatibility(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[licenseInfo]{
		title: "License compatibility",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (licenseInfo, error) {
			m, err := s.manifest(ctx, item)
			if err != nil {
				return licenseInfo{}, err
			}
			license := m.LicenseName()
			return licenseInfo{version: m.Version, license: license, category: classifyLicense(license)}, nil
		},
		render: func(_ string, info licenseInfo) string {
			var l report.Lines
			l.Add("Version", info.version)
			l.Add("License", valueOr(info.license, "none declared"))
			l.Add("Category", info.category.String())
			return l.String()
		},
		summarize: summarizeLicenses,
	})
}

func summarizeLicenses(results []fanout.Result[licenseInfo]) string {
	byCategory := map[licenseCategory][]string{}
	for _, r := range results {
		if r.OK() {
			byCategory[r.Value.category] = append(byCategory[r.Value.category], r.Item)
		}
	}

	var l report.Lines
	for c := licensePermissive; c <= licenseUnknown; c++ {
		if names := byCategory[c]; len(names) > 0 {
			l.Addf(strings.ToUpper(c.String()[:1])+c.String()[1:], "%s", strings.Join(names, ", "))
		}
	}

	copyleft := len(byCategory[licenseStrongCopyleft]) + len(byCategory[licenseWeakCopyleft])
	unclear := len(byCategory[licenseUnknown]) + len(byCategory[licenseProprietary])
	switch {
	case len(byCategory[licenseStrongCopyleft]) > 0:
		l.Text("Warning: strong copyleft licenses require derivative works to use the same license.")
	case copyleft > 0:
		l.Text("Note: weak copyleft licenses require sharing modifications to the licensed files.")
	}
	if unclear > 0 {
		l.Text(fmt.Sprintf("Warning: %d package(s) have unknown or proprietary licenses; review them manually.", unclear))
	}
	if copyleft == 0 && unclear == 0 {
		l.Text("All licenses are permissive and mutually compatible.")
	}
	return l.String()
}
