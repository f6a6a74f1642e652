package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

const schemaSource = `
#Config: {
	project?: {
		name?:    string
		version?: string
	}
	modules?: {
		dirs?: [...string]
		store?:        string
		"cache-size"?: int & >=0
		extension?:    =~"^\\.[A-Za-z0-9]+$"
	}
	processor?: {
		"pool-size"?:     int & >=0
		"stack-reserve"?: int & >=0 & <=4096
	}
	logging?: {
		verbosity?: int & >=-1 & <=6
		file?:      string
		"log-invalid-add-child-args"?: bool
	}
	gc?: {
		"temp-sweep-interval"?: string
		disabled?:              bool
	}
}
`

// A cue.Context is not safe for concurrent use.
var (
	schemaMu   sync.Mutex
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
	schemaOnce sync.Once
)

func loadSchema() {
	schemaCtx = cuecontext.New()
	v := schemaCtx.CompileString(schemaSource)
	if err := v.Err(); err != nil {
		schemaErr = fmt.Errorf("config: compiling schema: %w", err)
		return
	}
	schemaDef = v.LookupPath(cue.ParsePath("#Config"))
	if err := schemaDef.Err(); err != nil {
		schemaErr = fmt.Errorf("config: schema has no #Config: %w", err)
	}
}

// validate checks decoded configuration data against the schema.
func validate(data map[string]any) error {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return schemaErr
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := schemaCtx.Encode(data)
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := schemaDef.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the configuration values against the schema.
func (c *Config) Validate() error {
	dirs := make([]any, len(c.Modules.Dirs))
	for i, d := range c.Modules.Dirs {
		dirs[i] = d
	}
	data := map[string]any{
		"project": map[string]any{
			"name":    c.Project.Name,
			"version": c.Project.Version,
		},
		"modules": map[string]any{
			"dirs":       dirs,
			"store":      c.Modules.Store,
			"cache-size": c.Modules.CacheSize,
			"extension":  c.Modules.Extension,
		},
		"processor": map[string]any{
			"pool-size":     c.Processor.PoolSize,
			"stack-reserve": c.Processor.StackReserve,
		},
		"logging": map[string]any{
			"verbosity": c.Logging.Verbosity,
			"file":      c.Logging.File,
		},
		"gc": map[string]any{
			"temp-sweep-interval": c.GC.TempSweepInterval.String(),
			"disabled":            c.GC.Disabled,
		},
	}
	if c.Logging.LogInvalidAddChildArgs != nil {
		data["logging"].(map[string]any)["log-invalid-add-child-args"] = *c.Logging.LogInvalidAddChildArgs
	}
	if err := validate(data); err != nil {
		return err
	}
	if c.GC.TempSweepInterval.Duration < 0 {
		return fmt.Errorf("%w: negative temp-sweep-interval", ErrInvalidConfig)
	}
	return nil
}
