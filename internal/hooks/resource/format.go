package resource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// tracefsRoots are searched in order for event format files.
var tracefsRoots = []string{"/sys/kernel/tracing", "/sys/kernel/debug/tracing"}

// TracepointField is one field of a tracepoint record.
type TracepointField struct {
	Name   string
	Offset int
	Size   int
	Signed bool
}

// RSSStatLayout locates the fields on_rss reads in a kmem:rss_stat record.
// CurrOffset is -1 when the kernel does not report it.
type RSSStatLayout struct {
	CurrOffset   int
	MemberOffset int
	SizeOffset   int
}

// ParseTracepointFormat parses a tracefs "format" file.
func ParseTracepointFormat(r io.Reader) (map[string]TracepointField, error) {
	fields := make(map[string]TracepointField)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "field:") {
			continue
		}
		f, err := parseFieldLine(line)
		if err != nil {
			return nil, err
		}
		fields[f.Name] = f
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading format: %w", err)
	}
	if len(fields) == 0 {
		return nil, errors.New("format has no fields")
	}
	return fields, nil
}

// parseFieldLine parses
//
//	field:int member;	offset:16;	size:4;	signed:1;
func parseFieldLine(line string) (TracepointField, error) {
	var f TracepointField
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		var err error
		switch key {
		case "field":
			decl := strings.Fields(value)
			if len(decl) == 0 {
				return f, fmt.Errorf("empty field declaration in %q", line)
			}
			name := decl[len(decl)-1]
			if i := strings.IndexByte(name, '['); i >= 0 {
				name = name[:i]
			}
			f.Name = strings.TrimLeft(name, "*")
		case "offset":
			f.Offset, err = strconv.Atoi(value)
		case "size":
			f.Size, err = strconv.Atoi(value)
		case "signed":
			f.Signed = value == "1"
		}
		if err != nil {
			return f, fmt.Errorf("bad %s in %q: %w", key, line, err)
		}
	}
	if f.Name == "" {
		return f, fmt.Errorf("no field name in %q", line)
	}
	return f, nil
}

// NewRSSStatLayout picks the on_rss fields out of a parsed format.
func NewRSSStatLayout(fields map[string]TracepointField) (RSSStatLayout, error) {
	layout := RSSStatLayout{CurrOffset: -1}

	member, ok := fields["member"]
	if !ok || member.Size != 4 {
		return layout, errors.New("rss_stat: missing 4-byte member field")
	}
	size, ok := fields["size"]
	if !ok || size.Size != 8 {
		return layout, errors.New("rss_stat: missing 8-byte size field")
	}
	layout.MemberOffset = member.Offset
	layout.SizeOffset = size.Offset

	if curr, ok := fields["curr"]; ok && curr.Size >= 1 {
		layout.CurrOffset = curr.Offset
	}
	return layout, nil
}

// ReadRSSStatLayout reads the kmem:rss_stat format from tracefs.
func ReadRSSStatLayout() (RSSStatLayout, error) {
	var lastErr error
	for _, root := range tracefsRoots {
		f, err := os.Open(filepath.Join(root, "events", "kmem", "rss_stat", "format"))
		if err != nil {
			lastErr = err
			continue
		}
		fields, err := ParseTracepointFormat(f)
		f.Close()
		if err != nil {
			return RSSStatLayout{}, err
		}
		return NewRSSStatLayout(fields)
	}
	return RSSStatLayout{}, fmt.Errorf("kmem:rss_stat format not found: %w", lastErr)
}
