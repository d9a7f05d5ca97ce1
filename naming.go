package downloader

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"
)

const (
	DefaultPathTemplate = "{{.TargetName}}"
	DefaultFileTemplate = "{{.Title}}"
	// MaxFileNameBytes leaves room under the usual 255 byte limit for a collision suffix, the extension and the
	// temp file decoration added while downloading.
	MaxFileNameBytes = 200
)

var (
	unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	repeatedSpaces  = regexp.MustCompile(`\s+`)
)

// NamingArgs are the values available to path and file name templates.
type NamingArgs struct {
	TargetName string
	TargetKind TargetKind
	ID         string
	Title      string
	Author     string
	Subreddit  string
	Created    time.Time
	Date       string
}

func NewNamingArgs(targetName string, kind TargetKind, sub *Submission, title string) NamingArgs {
	return NamingArgs{
		TargetName: targetName,
		TargetKind: kind,
		ID:         sub.ID,
		Title:      title,
		Author:     sub.Author,
		Subreddit:  sub.Subreddit,
		Created:    sub.Created,
		Date:       sub.Created.UTC().Format("2006-01-02"),
	}
}

// A Naming renders the directory and base file name for downloaded content.
type Naming struct {
	dirTemplate  *template.Template
	fileTemplate *template.Template
}

func NewNaming(pathTemplate string, fileTemplate string) (*Naming, error) {
	if pathTemplate == "" {
		pathTemplate = DefaultPathTemplate
	}
	if fileTemplate == "" {
		fileTemplate = DefaultFileTemplate
	}
	dir, err := template.New("path").Parse(pathTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid path template: %w", err)
	}
	file, err := template.New("file").Parse(fileTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid file name template: %w", err)
	}
	return &Naming{dirTemplate: dir, fileTemplate: file}, nil
}

// Directory renders the path template under root, sanitising each path element.
func (n *Naming) Directory(root string, args *NamingArgs) (string, error) {
	rendered, err := execute(n.dirTemplate, args)
	if err != nil {
		return "", err
	}
	parts := []string{root}
	for _, p := range strings.FieldsFunc(rendered, func(r rune) bool { return r == '/' || r == '\\' }) {
		if clean := SanitizeFileName(p); clean != "" {
			parts = append(parts, clean)
		}
	}
	return filepath.Join(parts...), nil
}

// FileName renders the file name template without extension. The rendered name is truncated to make room for
// suffix, which is appended intact.
func (n *Naming) FileName(args *NamingArgs, suffix string) (string, error) {
	rendered, err := execute(n.fileTemplate, args)
	if err != nil {
		return "", err
	}
	suffix = unsafeFileChars.ReplaceAllString(suffix, "")
	limit := MaxFileNameBytes - len(suffix)
	name := sanitize(rendered, limit)
	if name == "" {
		name = sanitize(args.ID, limit)
	}
	if name == "" {
		name = "untitled"
	}
	return name + suffix, nil
}

func execute(t *template.Template, args *NamingArgs) (string, error) {
	builder := strings.Builder{}
	if err := t.Execute(&builder, args); err != nil {
		return "", err
	} else {
		return builder.String(), nil
	}
}

// SanitizeFileName strips characters that are not valid in file names on common filesystems.
// The result is at most MaxFileNameBytes long, cut on a character boundary.
func SanitizeFileName(s string) string {
	return sanitize(s, MaxFileNameBytes)
}

func sanitize(s string, limit int) string {
	s = unsafeFileChars.ReplaceAllString(s, "")
	s = repeatedSpaces.ReplaceAllString(s, " ")
	s = strings.Trim(s, " .")
	if len(s) > limit {
		s = strings.TrimRight(truncate(s, limit), " .")
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
