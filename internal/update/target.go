package update

import (
	"regexp"
	"strings"
)

// Target is the platform/arch pair an update is resolved for.
type Target struct {
	Platform string
	Arch     string
}

// targetTag matches "darwin-arm64" style tags in a client identification string.
var targetTag = regexp.MustCompile(`(?i)\b(darwin|mas|win32|linux)[-_](x64|arm64|ia32|armv7l|arm|universal)\b`)

var platformAliases = map[string]string{
	"mac":     "darwin",
	"macos":   "darwin",
	"osx":     "darwin",
	"windows": "win32",
	"win":     "win32",
}

var archAliases = map[string]string{
	"amd64":   "x64",
	"x86_64":  "x64",
	"aarch64": "arm64",
	"x86":     "ia32",
	"386":     "ia32",
}

// NormalizePlatform lower-cases p and maps common aliases onto Electron's names.
func NormalizePlatform(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if alias, ok := platformAliases[p]; ok {
		return alias
	}
	return p
}

// NormalizeArch lower-cases a and maps common aliases onto Electron's names.
func NormalizeArch(a string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	if alias, ok := archAliases[a]; ok {
		return alias
	}
	return a
}

// ResolveTarget picks the target for a request. Explicit values win; missing
// ones are sniffed from a platform-arch tag in userAgent, then taken from
// defaults. Sniffing is best-effort and can mis-identify the client.
func ResolveTarget(platform, arch, userAgent string, defaults Target) Target {
	t := Target{Platform: NormalizePlatform(platform), Arch: NormalizeArch(arch)}
	if t.Platform != "" && t.Arch != "" {
		return t
	}

	if m := targetTag.FindStringSubmatch(userAgent); m != nil {
		if t.Platform == "" {
			t.Platform = strings.ToLower(m[1])
		}
		if t.Arch == "" {
			t.Arch = strings.ToLower(m[2])
		}
	}

	if t.Platform == "" {
		t.Platform = NormalizePlatform(defaults.Platform)
	}
	if t.Arch == "" {
		t.Arch = NormalizeArch(defaults.Arch)
	}
	return t
}
