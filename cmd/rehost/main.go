package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/coolbeans/rehost/pkg/registry"
	"github.com/coolbeans/rehost/pkg/rehost"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "rehost",
		Short: "Rehost external web assets locally",
		Long: `Rehost rewrites an HTML document so that every externally-hosted
stylesheet and script (and every asset those stylesheets reference) is
replaced by a locally-stored copy.

Each remote resource is fetched exactly once, deduplicated across all the
places that reference it, and written out under a stable local path.`,
		Version: version,
	}

	rootCmd.AddCommand(processCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Rewrite an HTML document and download its external assets",
		Long: `Process parses an HTML document, rewrites external stylesheet and
script references to local paths, recursively downloads everything those
stylesheets reference, and writes the results to the output directory.

Example:
  rehost process --input index.html --output site
  rehost process --input index.html --output site --fingerprint`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			output, _ := cmd.Flags().GetString("output")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			fingerprint, _ := cmd.Flags().GetBool("fingerprint")

			if input == "" {
				return fmt.Errorf("--input flag is required")
			}

			source, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", input, err)
			}

			document, err := html.Parse(strings.NewReader(string(source)))
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", input, err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			engine := rehost.New(rehost.Options{})

			fmt.Printf("Processing: %s\n", input)
			rewritten, err := engine.RewriteDocument(ctx, document)
			if err != nil {
				return fmt.Errorf("failed to rewrite document: %w", err)
			}

			files, err := engine.Materialize(ctx)
			if err != nil {
				return fmt.Errorf("failed to resolve assets: %w", err)
			}

			emittedNames := emissionNames(files, fingerprint)

			totalBytes := int64(0)
			for _, file := range files {
				content := file.Content
				if fingerprint && isTextIdentity(file.Identity) {
					content = relinkContent(content, emittedNames)
				}

				localPath := filepath.Join(output, filepath.FromSlash(strings.TrimPrefix(emittedNames[file.Identity], "/")))
				if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
					return fmt.Errorf("failed to create directory for %s: %w", localPath, err)
				}
				if err := os.WriteFile(localPath, content, 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", localPath, err)
				}

				totalBytes += int64(len(content))
				fmt.Printf("  %s (%d bytes)\n", emittedNames[file.Identity], len(content))
			}

			if fingerprint {
				relinkDocument(document, emittedNames)
			}

			outputFile := filepath.Join(output, filepath.Base(input))
			rendered := &strings.Builder{}
			if err := html.Render(rendered, document); err != nil {
				return fmt.Errorf("failed to render document: %w", err)
			}
			if err := os.MkdirAll(output, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			if err := os.WriteFile(outputFile, []byte(rendered.String()), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputFile, err)
			}

			fmt.Printf("\nRewrote %d references, wrote %d assets (%d bytes) to %s\n",
				rewritten, len(files), totalBytes, output)
			return nil
		},
	}

	cmd.Flags().String("input", "", "HTML file to process (required)")
	cmd.Flags().String("output", "rehosted", "Output directory")
	cmd.Flags().Duration("timeout", 60*time.Second, "Overall deadline for fetching")
	cmd.Flags().Bool("fingerprint", false, "Splice a short content hash into each emitted file name")

	return cmd
}

// emissionNames maps each file identity to the path it is emitted under.
// Without fingerprinting the identity is used as-is; with fingerprinting an
// 8-character content hash is spliced in before the extension.
func emissionNames(files []registry.File, fingerprint bool) map[string]string {
	names := make(map[string]string, len(files))
	for _, file := range files {
		if fingerprint {
			names[file.Identity] = fingerprintName(file.Identity, file.Content)
		} else {
			names[file.Identity] = file.Identity
		}
	}
	return names
}

// fingerprintName derives the on-disk name for an identity from its content:
// /host/app.css → /host/app.d41d8cd9.css.
func fingerprintName(identityKey string, content []byte) string {
	digest := sha256.Sum256(content)
	short := hex.EncodeToString(digest[:])[:8]

	extension := path.Ext(identityKey)
	stem := strings.TrimSuffix(identityKey, extension)
	if extension == "" {
		return stem + "." + short
	}
	return stem + "." + short + extension
}

// isTextIdentity reports whether an emitted file may embed identity paths
// that need relinking when fingerprinted names are in use.
func isTextIdentity(identityKey string) bool {
	return strings.HasSuffix(identityKey, ".css")
}

// relinkContent rewrites identity paths embedded in text content to their
// fingerprinted names.
func relinkContent(content []byte, emittedNames map[string]string) []byte {
	text := string(content)
	for identityKey, emittedName := range emittedNames {
		if identityKey != emittedName {
			text = strings.ReplaceAll(text, identityKey, emittedName)
		}
	}
	return []byte(text)
}

// relinkDocument rewrites attribute values that carry an identity path to
// the fingerprinted name.
func relinkDocument(document *html.Node, emittedNames map[string]string) {
	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			for i, attribute := range node.Attr {
				if emittedName, exists := emittedNames[attribute.Val]; exists {
					node.Attr[i].Val = emittedName
				}
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(document)
}
