package target

import (
	"regexp"
	"strings"
)

// quotePGIdent safely quotes a PostgreSQL identifier, escaping embedded quotes.
func quotePGIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

var plainIdentRe = regexp.MustCompile(`^[a-z_][a-z0-9_$]*$`)

// reservedWords are the reserved PostgreSQL keywords most likely to show up
// as desktop database table or column names.
var reservedWords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "both": true, "case": true,
	"cast": true, "check": true, "collate": true, "column": true,
	"constraint": true, "create": true, "current_date": true,
	"current_time": true, "current_timestamp": true, "current_user": true,
	"default": true, "desc": true, "distinct": true, "do": true, "else": true,
	"end": true, "except": true, "false": true, "fetch": true, "for": true,
	"foreign": true, "from": true, "grant": true, "group": true,
	"having": true, "in": true, "initially": true, "intersect": true,
	"into": true, "leading": true, "limit": true, "localtime": true,
	"not": true, "null": true, "offset": true, "on": true, "only": true,
	"or": true, "order": true, "placing": true, "primary": true,
	"references": true, "returning": true, "select": true,
	"session_user": true, "some": true, "table": true, "then": true,
	"to": true, "trailing": true, "true": true, "union": true,
	"unique": true, "user": true, "using": true, "when": true,
	"where": true, "window": true, "with": true,
}

// pgIdent renders a destination identifier: lower-cased, and quoted only
// when the bare form would not parse as that same name.
func pgIdent(name string) string {
	name = strings.ToLower(name)
	if plainIdentRe.MatchString(name) && !reservedWords[name] {
		return name
	}
	return quotePGIdent(name)
}
