package upstream

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/petal-labs/npmsentinel/tool"
)

const maxPackageNameLength = 214

var packageNamePattern = regexp.MustCompile(`^(?:@[a-z0-9-*~][a-z0-9-*._~]*/)?[a-z0-9-~][a-z0-9-._~]*$`)

// ValidatePackageName checks name against npm's naming rules.
func ValidatePackageName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return tool.NewToolError(tool.ToolErrorCodeInvalidArguments, "package name is empty", nil)
	case len(name) > maxPackageNameLength:
		return tool.NewToolError(tool.ToolErrorCodeInvalidArguments,
			fmt.Sprintf("package name exceeds %d characters", maxPackageNameLength), nil)
	case !packageNamePattern.MatchString(name):
		return tool.NewToolError(tool.ToolErrorCodeInvalidArguments,
			fmt.Sprintf("invalid package name %q", name), nil)
	}
	return nil
}

// SplitSpec splits "name@version" into its parts. The leading "@" of a
// scoped name is not treated as a version separator.
func SplitSpec(spec string) (name, version string) {
	spec = strings.TrimSpace(spec)
	search := spec
	offset := 0
	if strings.HasPrefix(spec, "@") {
		search = spec[1:]
		offset = 1
	}
	if idx := strings.LastIndex(search, "@"); idx >= 0 {
		return spec[:idx+offset], spec[idx+offset+1:]
	}
	return spec, ""
}

// ParseSpec splits and validates a package spec.
func ParseSpec(spec string) (name, version string, err error) {
	name, version = SplitSpec(spec)
	if err := ValidatePackageName(name); err != nil {
		return "", "", err
	}
	return name, version, nil
}

// escapeName escapes a package name for use as a registry path segment;
// "@scope/name" becomes "@scope%2Fname".
func escapeName(name string) string {
	return url.PathEscape(name)
}

// escapeNameStrict escapes every reserved character, including "@".
func escapeNameStrict(name string) string {
	return url.QueryEscape(name)
}

// TypesPackageName returns the DefinitelyTyped package name for name.
func TypesPackageName(name string) string {
	if strings.HasPrefix(name, "@types/") {
		return name
	}
	if strings.HasPrefix(name, "@") {
		if scope, rest, ok := strings.Cut(name[1:], "/"); ok {
			return "@types/" + scope + "__" + rest
		}
	}
	return "@types/" + name
}
