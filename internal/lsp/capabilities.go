package lsp

import (
	"os/exec"

	"github.com/morozRed/codescape/internal/languages"
)

// ServerCommand is one way to start a language server over stdio.
type ServerCommand struct {
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
}

type Capability struct {
	Present   bool          `json:"present"`
	Server    ServerCommand `json:"server"`
	Available bool          `json:"available"`
	Reason    string        `json:"reason,omitempty"`
}

// languageServers lists candidate servers per language in preference order.
var languageServers = map[string][]ServerCommand{
	"go":         {{Command: "gopls"}},
	"python":     {{Command: "pyright-langserver", Args: []string{"--stdio"}}, {Command: "pylsp"}},
	"typescript": {{Command: "typescript-language-server", Args: []string{"--stdio"}}},
	"javascript": {{Command: "typescript-language-server", Args: []string{"--stdio"}}},
	"ruby":       {{Command: "solargraph", Args: []string{"stdio"}}},
}

func LanguageForPath(registry *languages.Registry, path string) (string, bool) {
	language, ok := registry.ForPath(path)
	if !ok {
		return "", false
	}
	return language.ID, true
}

func DetectLanguagePresence(registry *languages.Registry, paths []string) map[string]bool {
	presence := make(map[string]bool, len(languageServers))
	for language := range languageServers {
		presence[language] = false
	}
	for _, path := range paths {
		if language, ok := LanguageForPath(registry, path); ok {
			presence[language] = true
		}
	}
	return presence
}

func ProbeCapabilities(presence map[string]bool) map[string]Capability {
	return ProbeCapabilitiesWithLookPath(presence, exec.LookPath)
}

func ProbeCapabilitiesWithLookPath(presence map[string]bool, lookPath func(file string) (string, error)) map[string]Capability {
	capabilities := make(map[string]Capability, len(languageServers))
	for language := range languageServers {
		capability := Capability{Present: presence[language]}
		server, found := ResolveServer(language, lookPath)
		capability.Server = server

		switch {
		case !capability.Present:
			capability.Reason = "language_not_present"
		case !found:
			capability.Reason = "server_not_found"
		default:
			capability.Available = true
		}
		capabilities[language] = capability
	}
	return capabilities
}

// ResolveServer returns the first installed server for language. When none is
// installed it returns the preferred candidate and false.
func ResolveServer(language string, lookPath func(file string) (string, error)) (ServerCommand, bool) {
	candidates := languageServers[language]
	for _, candidate := range candidates {
		if _, err := lookPath(candidate.Command); err == nil {
			return candidate, true
		}
	}
	if len(candidates) > 0 {
		return candidates[0], false
	}
	return ServerCommand{}, false
}
