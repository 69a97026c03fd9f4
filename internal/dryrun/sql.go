package dryrun

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)
	limitPattern       = regexp.MustCompile(`(?i)\blimit\s+\d+`)
	tablePattern       = regexp.MustCompile("(?i)\\b(?:from|join)\\s+([A-Za-z0-9_.\"`\\[\\]]+)")

	unquote = strings.NewReplacer(`"`, "", "`", "", "[", "", "]", "")
)

// ApplyParameters replaces {{ name }} placeholders with parameter values.
// Placeholders without a value are left as they are.
func ApplyParameters(text string, params []Parameter) string {
	values := make(map[string]string, len(params))
	for _, p := range params {
		if p.Value != "" {
			values[p.Name] = p.Value
		}
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return m
	})
}

// ApplyAutoLimit appends "LIMIT n" unless the text already has a LIMIT clause.
// A trailing semicolon is kept at the end.
func ApplyAutoLimit(text string, limit int) string {
	if limitPattern.MatchString(text) {
		return text
	}
	body := strings.TrimSpace(text)
	suffix := ""
	if strings.HasSuffix(body, ";") {
		body = strings.TrimSpace(strings.TrimRight(body, ";"))
		suffix = ";"
	}
	return fmt.Sprintf("%s LIMIT %d%s", body, limit, suffix)
}

// ReferencedTables returns the distinct tables named after FROM or JOIN, in
// order of first appearance, with quoting removed.
func ReferencedTables(text string) []string {
	seen := make(map[string]bool)
	var tables []string
	for _, m := range tablePattern.FindAllStringSubmatch(text, -1) {
		name := unquote.Replace(m[1])
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		tables = append(tables, name)
	}
	return tables
}

// EstimateBytes sums the catalogued size of every referenced table. Tables
// missing from the data source cost unknownBytes each.
func EstimateBytes(text string, ds *DataSource, unknownBytes int64) int64 {
	var total int64
	for _, table := range ReferencedTables(text) {
		size, ok := lookupTable(ds, table)
		if !ok {
			size = unknownBytes
		}
		total += size
	}
	return total
}

func lookupTable(ds *DataSource, table string) (int64, bool) {
	if ds == nil {
		return 0, false
	}
	if size, ok := ds.Tables[table]; ok {
		return size, true
	}
	for name, size := range ds.Tables {
		if strings.EqualFold(name, table) {
			return size, true
		}
	}
	return 0, false
}
