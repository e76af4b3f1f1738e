package timeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MediaResolver maps a clip source reference to a readable file. When proxy
// is true the resolver may return a lower-resolution stand-in. Missing media
// is reported with an error wrapping ErrUnresolvedMedia.
type MediaResolver interface {
	Resolve(src string, proxy bool) (string, error)
}

// ProxyDirName is the directory, inside a media root, holding proxies named
// <stem>.mp4.
const ProxyDirName = ".proxies"

// DirResolver resolves sources as file names under Root.
type DirResolver struct {
	Root string
}

func (d DirResolver) Resolve(src string, proxy bool) (string, error) {
	path, err := JoinMedia(d.Root, src)
	if err != nil {
		return "", err
	}
	if proxy {
		if p := ProxyPath(d.Root, src); p != "" && isFile(p) {
			return p, nil
		}
	}
	if !isFile(path) {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedMedia, src)
	}
	return path, nil
}

// JoinMedia places src under root. Editor references may carry an
// "/uploads/" prefix; references that escape root are rejected.
func JoinMedia(root, src string) (string, error) {
	name := strings.TrimPrefix(filepath.ToSlash(src), "/uploads/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return "", fmt.Errorf("%w: empty source", ErrUnresolvedMedia)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s escapes the media directory", ErrUnresolvedMedia, src)
		}
	}
	return filepath.Join(root, filepath.FromSlash(name)), nil
}

// ProxyPath is where the proxy for src would live under root.
func ProxyPath(root, src string) string {
	path, err := JoinMedia(root, src)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.Join(root, ProxyDirName, stem+".mp4")
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// MapResolver resolves from a fixed table. Proxies are looked up under the
// key "proxy:" + src.
type MapResolver map[string]string

func (m MapResolver) Resolve(src string, proxy bool) (string, error) {
	if proxy {
		if p, ok := m["proxy:"+src]; ok {
			return p, nil
		}
	}
	if p, ok := m[src]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnresolvedMedia, src)
}
