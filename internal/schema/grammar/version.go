package grammar

import (
	"strconv"
	"strings"
)

// keywords maps every leaf keyword to the first language version that
// knows it.
var keywords = map[string]string{
	"is":              "1.0",
	"not":             "1.0",
	"in":              "1.0",
	"starts":          "1.0",
	"ends":            "1.0",
	"regex":           "1.0",
	"range":           "1.0",
	"length":          "1.0",
	"empty":           "1.0",
	"notEmpty":        "1.0",
	"uri":             "1.0",
	"uuid4":           "1.0",
	"positiveInteger": "1.0",
	"fileExists":      "1.0",
	"checksum":        "1.0",
	"any":             "1.1",
	"upperCase":       "1.1",
	"lowerCase":       "1.1",
	"xDate":           "1.2",
	"xDateTime":       "1.2",
	"xInteger":        "1.2",
	"xDecimal":        "1.2",
}

var globalDirectives = map[string]string{
	"separator":            "1.0",
	"quoted":               "1.0",
	"totalColumns":         "1.0",
	"noHeader":             "1.0",
	"ignoreColumnNameCase": "1.0",
	"permitEmpty":          "1.1",
}

var columnDirectives = map[string]string{
	"optional":     "1.0",
	"matchIsFalse": "1.0",
	"ignoreCase":   "1.0",
	"warning":      "1.0",
}

// versionAtLeast compares two "major.minor" versions.
func versionAtLeast(have, want string) bool {
	hMaj, hMin := splitVersion(have)
	wMaj, wMin := splitVersion(want)
	if hMaj != wMaj {
		return hMaj > wMaj
	}
	return hMin >= wMin
}

func splitVersion(v string) (int, int) {
	maj, min, _ := strings.Cut(v, ".")
	a, _ := strconv.Atoi(maj)
	b, _ := strconv.Atoi(min)
	return a, b
}
