package handlers

import (
	"bytes"
	"html/template"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"fluxdash/config"
	"fluxdash/models"
)

// PreviewHandler serves an inline preview page for any file under the dataset
// root — sidecar JSON, TSV tables, README files, figures. Text gets syntax
// highlighting; Markdown and Org documents additionally get a rich render.
func PreviewHandler(cfg *config.Config, tmpl Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/preview")
		rel = strings.TrimPrefix(rel, "/")

		fsPath, err := resolveUnder(cfg.DatasetRoot, rel)
		if err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		info, err := statFile(fsPath)
		if err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		mimeType := mimeForFile(fsPath)
		pd := &models.PreviewData{
			Page:     page(cfg, filepath.Base(fsPath), "/preview/"+rel),
			FilePath: "/preview/" + rel,
			FileName: filepath.Base(fsPath),
			ViewURL:  "/view/" + rel,
			FileSize: info.Size(),
			MIMEType: mimeType,
			ModTime:  info.ModTime(),
		}

		switch {
		case isImage(mimeType):
			pd.IsImage = true
		case isText(mimeType):
			pd.IsText = true
			content, err := readTextFile(fsPath)
			if err != nil {
				http.Error(w, "Could not read file", http.StatusInternalServerError)
				return
			}
			// Always populate the highlighted fallback first.
			highlighted, err := highlightContent(content, pd.FileName, cfg.Theme)
			if err != nil {
				highlighted = template.HTML("<pre class=\"chroma\"><code>" +
					template.HTMLEscapeString(content) + "</code></pre>")
			}
			pd.HighlightedContent = highlighted
			if isRenderable(mimeType) {
				if rendered, err := renderContent(content, mimeType, cfg.Theme); err == nil {
					pd.RenderedContent = rendered
					pd.IsRendered = true
				}
			}
		default:
			pd.IsBinary = true
		}

		render(w, tmpl.ExecutePreview, pd)
	}
}

// ViewHandler serves a dataset file inline, for the raw-file link and the
// <img> element on preview pages.
func ViewHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/view")
		rel = strings.TrimPrefix(rel, "/")

		fsPath, err := resolveUnder(cfg.DatasetRoot, rel)
		if err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		info, err := statFile(fsPath)
		if err != nil {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}

		f, err := os.Open(fsPath)
		if err != nil {
			http.Error(w, "Could not open file", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", mimeForFile(fsPath))
		http.ServeContent(w, r, filepath.Base(fsPath), info.ModTime(), f)
	}
}

// HighlightCSSHandler serves the Chroma stylesheet for the configured theme.
// The CSS is generated once at startup and cached in memory.
func HighlightCSSHandler(theme string) http.HandlerFunc {
	style := styles.Get(theme)
	if style == nil {
		style = styles.Fallback
	}
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	var buf bytes.Buffer
	if err := formatter.WriteCSS(&buf, style); err != nil {
		buf.Reset()
	}
	css := buf.Bytes()

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Write(css)
	}
}

// highlightContent runs Chroma over content, using filename for language
// detection.
func highlightContent(content, filename, theme string) (template.HTML, error) {
	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Analyse(content)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	style := styles.Get(theme)
	if style == nil {
		style = styles.Fallback
	}

	formatter := chromahtml.New(
		chromahtml.WithClasses(true),
		chromahtml.WithLineNumbers(true),
		chromahtml.LineNumbersInTable(true),
		chromahtml.TabWidth(4),
	)

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// readTextFile reads a file capped at 2 MB so a mistakenly previewed data
// file cannot balloon memory.
func readTextFile(fsPath string) (string, error) {
	const maxBytes = 2 * 1024 * 1024
	f, err := os.Open(fsPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
