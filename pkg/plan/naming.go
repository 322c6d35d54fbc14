package plan

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// startTimeDigits is the width of the "_s" start-time field in GOES-R file
// names: YYYYDDDHHMMSS plus tenths of a second.
const startTimeDigits = 14

// FileName returns the canonical plan file name, e.g.
// plan_01_download_2026_003_GOES19_east_ABI-L2-LSTF.json.
func FileName(year, day, satDisplayName, position, productID string) string {
	return fmt.Sprintf("plan_01_download_%s_%s_%s_%s_%s.json", year, day, satDisplayName, position, productID)
}

// FileName returns the canonical file name for p.
func (p *Plan) FileName() string {
	i := p.SatProdInfo
	return FileName(i.Year, i.Day, "GOES"+i.SatID, i.SatPosition, i.ProductID)
}

// RelPath returns the plan path relative to the plan root: <year>/<day>/<file>.
func (p *Plan) RelPath() string {
	return path.Join(p.SatProdInfo.Year, p.SatProdInfo.Day, p.FileName())
}

// stem strips the trailing "*.nc" from a search token.
func (f RemoteFile) stem() string {
	return strings.TrimSuffix(f.Regex, "*.nc")
}

// Matcher returns an anchored matcher for this entry's file names. A name
// matches only if the digits after the slot token exactly complete the
// start-time field.
func (e *Entry) Matcher() *regexp.Regexp {
	pad := startTimeDigits - len(e.TimeStamp)
	if pad < 0 {
		pad = 0
	}
	return regexp.MustCompile(fmt.Sprintf(`^%s\d{%d}_e\d+_c\d+\.nc$`, regexp.QuoteMeta(e.FileS3.stem()), pad))
}

// MatchesKey reports whether an object key belongs to this entry: it must
// live directly under the entry prefix and its base name must match.
func (e *Entry) MatchesKey(key string) bool {
	dir, name := path.Split(key)
	if strings.TrimSuffix(dir, "/") != e.FileS3.Prefix {
		return false
	}
	return e.Matcher().MatchString(name)
}
