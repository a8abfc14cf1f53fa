package pack

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"

	"github.com/jgivc/paqmirror/internal/entity"
)

const (
	contentsFileName    = "contents.html"
	descriptionFileName = "description.md"
)

// descriptionMeta is the optional YAML frontmatter of a user-supplied
// description.md placed in the output directory.
type descriptionMeta struct {
	Title string `yaml:"title"`
}

var contentsTemplate = template.Must(template.New("contents").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{.Description}}
<table border="1">
<tr><th>Id</th><th>Name</th><th>Version</th><th>Category</th></tr>
{{range .Packages}}<tr><td>{{.ID}}</td><td>{{.Name}}</td><td>{{.Version}}</td><td>{{.Category}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type contentsContext struct {
	Title       string
	Description template.HTML
	Packages    []entity.CatalogRecord
}

// writeContents renders the human-readable contents page of the pack. An
// optional description.md next to the output directory contributes a title
// (frontmatter) and a rendered body.
func writeContents(fs afero.Fs, workDir, outputDir, name string, packages []entity.CatalogRecord) error {
	cctx := contentsContext{Title: name, Packages: packages}

	mdPath := filepath.Join(outputDir, descriptionFileName)
	if data, err := afero.ReadFile(fs, mdPath); err == nil {
		md := goldmark.New(
			goldmark.WithExtensions(&frontmatter.Extender{}),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		)

		var buf bytes.Buffer
		pc := parser.NewContext()
		if err := md.Convert(data, &buf, parser.WithContext(pc)); err != nil {
			return fmt.Errorf("cannot render description: %w", err)
		}

		if fm := frontmatter.Get(pc); fm != nil {
			var meta descriptionMeta
			if err := fm.Decode(&meta); err == nil && strings.TrimSpace(meta.Title) != "" {
				cctx.Title = meta.Title
			}
		}

		cctx.Description = template.HTML(buf.String())
	}

	var out bytes.Buffer
	if err := contentsTemplate.Execute(&out, &cctx); err != nil {
		return fmt.Errorf("cannot build contents page: %w", err)
	}

	return afero.WriteFile(fs, filepath.Join(workDir, contentsFileName), out.Bytes(), 0o644)
}
