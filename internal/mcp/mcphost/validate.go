package mcphost

import (
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// schemaCache resolves input schemas once per tool and reuses the compiled
// form across invocations. Safe for concurrent use.
type schemaCache struct {
	mu       sync.Mutex
	resolved map[*jsonschema.Schema]*jsonschema.Resolved
}

func newSchemaCache() *schemaCache {
	return &schemaCache{resolved: make(map[*jsonschema.Schema]*jsonschema.Resolved)}
}

// validate checks args against schema. A nil schema accepts anything. A nil
// args map validates as an empty object.
func (c *schemaCache) validate(schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}

	c.mu.Lock()
	res, ok := c.resolved[schema]
	c.mu.Unlock()

	if !ok {
		var err error
		res, err = schema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("mcp host: unresolvable input schema: %w", err)
		}
		c.mu.Lock()
		c.resolved[schema] = res
		c.mu.Unlock()
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := res.Validate(args); err != nil {
		return fmt.Errorf("arguments do not match the tool's input schema: %w", err)
	}
	return nil
}
