package lsp

import (
	"encoding/json"
	"net/url"
	"path/filepath"
	"strings"
)

// Position is a 0-based line/character pair.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// SymbolKind is the numeric declaration kind defined by the protocol (1-26).
type SymbolKind int

// DocumentSymbol is one node of a textDocument/documentSymbol reply.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation is the flat reply shape some servers still send.
type SymbolInformation struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Location      Location   `json:"location"`
	ContainerName string     `json:"containerName,omitempty"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type documentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type referenceParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	Context      struct {
		IncludeDeclaration bool `json:"includeDeclaration"`
	} `json:"context"`
}

type didOpenParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type didCloseParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type initializeParams struct {
	ProcessID             int                `json:"processId"`
	RootURI               string             `json:"rootUri"`
	Capabilities          clientCapabilities `json:"capabilities"`
	InitializationOptions interface{}        `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []workspaceFolder  `json:"workspaceFolders,omitempty"`
}

type workspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type clientCapabilities struct {
	TextDocument struct {
		DocumentSymbol struct {
			HierarchicalDocumentSymbolSupport bool `json:"hierarchicalDocumentSymbolSupport"`
		} `json:"documentSymbol"`
		References struct{} `json:"references"`
	} `json:"textDocument"`
}

// ServerCapabilities keeps the providers this client relies on.
type ServerCapabilities struct {
	DocumentSymbolProvider interface{} `json:"documentSymbolProvider,omitempty"`
	ReferencesProvider     interface{} `json:"referencesProvider,omitempty"`
}

func (c ServerCapabilities) HasDocumentSymbolProvider() bool {
	return c.DocumentSymbolProvider != nil && c.DocumentSymbolProvider != false
}

func (c ServerCapabilities) HasReferencesProvider() bool {
	return c.ReferencesProvider != nil && c.ReferencesProvider != false
}

type initializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *struct {
		Name    string `json:"name"`
		Version string `json:"version,omitempty"`
	} `json:"serverInfo,omitempty"`
}

// ParseDocumentSymbols decodes either reply shape of textDocument/documentSymbol.
// Flat SymbolInformation entries become childless DocumentSymbols whose range
// and selection range are the reported location.
func ParseDocumentSymbols(data json.RawMessage) ([]DocumentSymbol, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if !strings.HasPrefix(trimmed, "[") {
		return nil, ErrInvalidResponse
	}

	var probe []struct {
		Location *Location `json:"location"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, ErrInvalidResponse
	}
	flat := len(probe) > 0 && probe[0].Location != nil

	if flat {
		var infos []SymbolInformation
		if err := json.Unmarshal(data, &infos); err != nil {
			return nil, ErrInvalidResponse
		}
		out := make([]DocumentSymbol, 0, len(infos))
		for _, info := range infos {
			out = append(out, DocumentSymbol{
				Name:           info.Name,
				Kind:           info.Kind,
				Range:          info.Location.Range,
				SelectionRange: info.Location.Range,
			})
		}
		return out, nil
	}

	var symbols []DocumentSymbol
	if err := json.Unmarshal(data, &symbols); err != nil {
		return nil, ErrInvalidResponse
	}
	return symbols, nil
}

// ParseLocations decodes a Location[] or single Location reply.
func ParseLocations(data json.RawMessage) ([]Location, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var locations []Location
		if err := json.Unmarshal(data, &locations); err != nil {
			return nil, ErrInvalidResponse
		}
		return locations, nil
	}
	var single Location
	if err := json.Unmarshal(data, &single); err != nil || single.URI == "" {
		return nil, ErrInvalidResponse
	}
	return []Location{single}, nil
}

// PathToURI converts a file path to a file:// URI.
func PathToURI(path string) string {
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// URIToPath converts a file:// URI to a file path.
func URIToPath(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return strings.TrimPrefix(uri, "file://")
}

// RelativePath returns location relative to rootPath with forward slashes.
// Paths outside the root are returned unchanged.
func RelativePath(rootPath string, locationPath string) string {
	locationPath = strings.TrimSpace(locationPath)
	if locationPath == "" {
		return locationPath
	}
	if filepath.IsAbs(locationPath) {
		rel, err := filepath.Rel(rootPath, locationPath)
		if err == nil && rel != "" && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(locationPath)
}
