package loader

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// maxLineLength bounds a single line in line mode.
const maxLineLength = 1 << 20

// Item is one document read from disk.
type Item struct {
	Text     string
	Metadata map[string]any
}

// ReadItems reads every regular file under paths. Directories are walked
// recursively, skipping entries whose name starts with a dot. With lines
// set, each non-blank line becomes an item carrying its 1-based line
// number; otherwise each non-blank file is one item. Every item records its
// file path under "source".
func ReadItems(paths []string, lines bool) ([]Item, error) {
	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}

	var items []Item
	for _, path := range files {
		if lines {
			fileItems, err := readLines(path)
			if err != nil {
				return nil, err
			}
			items = append(items, fileItems...)
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		items = append(items, Item{
			Text:     string(data),
			Metadata: map[string]any{"source": path},
		})
	}
	return items, nil
}

func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		slices.Sort(found)
		files = append(files, found...)
	}
	return files, nil
}

func readLines(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []Item
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		items = append(items, Item{
			Text:     text,
			Metadata: map[string]any{"source": path, "line": line},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return items, nil
}
