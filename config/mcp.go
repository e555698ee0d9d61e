package config

import "maps"

// MCPServer represents an MCP server the agent should attach to its sessions
type MCPServer struct {
	Name    string            `yaml:"name"`          // Unique identifier for the server
	Command string            `yaml:"command"`       // Executable command (e.g., "npx", "node")
	Args    []string          `yaml:"args"`          // Command arguments
	Env     map[string]string `yaml:"env,omitempty"` // Extra environment for the server
}

// AddMCPServer adds an MCP server (returns false if name already exists)
func (c *Config) AddMCPServer(server MCPServer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.MCPServers {
		if s.Name == server.Name {
			return false
		}
	}
	c.MCPServers = append(c.MCPServers, server)
	return true
}

// RemoveMCPServer removes an MCP server by name
func (c *Config) RemoveMCPServer(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.MCPServers {
		if s.Name == name {
			c.MCPServers = append(c.MCPServers[:i], c.MCPServers[i+1:]...)
			return true
		}
	}
	return false
}

// GetMCPServers returns a deep copy of the configured MCP servers. Never nil.
func (c *Config) GetMCPServers() []MCPServer {
	c.mu.RLock()
	defer c.mu.RUnlock()

	servers := make([]MCPServer, len(c.MCPServers))
	for i, s := range c.MCPServers {
		servers[i] = MCPServer{
			Name:    s.Name,
			Command: s.Command,
			Args:    append([]string(nil), s.Args...),
			Env:     maps.Clone(s.Env),
		}
	}
	return servers
}
