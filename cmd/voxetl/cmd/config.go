package cmd

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/voxetl/voxetl/internal/config"
	"github.com/voxetl/voxetl/pkg/bytesize"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

Redirect the output to a file to create a configuration template:

  voxetl config dump > config.yaml

Configuration can be set via:
  - Config file (./config.yaml, /etc/voxetl/config.yaml, $HOME/.voxetl/config.yaml)
  - Environment variables with the VOXETL_ prefix and underscores for
    nesting, e.g. transcription.api_key -> VOXETL_TRANSCRIPTION_API_KEY
  - A .env file in the working directory`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map, formatting durations and byte
// sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = strings.ToLower(fieldType.Name)
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = bytesize.Format(bytesize.Size(v))
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Never dump the live credential.
	if cfg.Transcription.APIKey != "" {
		cfg.Transcription.APIKey = "***"
	}
	if cfg.Storage.SecretKey != "" {
		cfg.Storage.SecretKey = "***"
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# voxetl Configuration File")
	fmt.Println("# =========================")
	fmt.Println("#")
	fmt.Println("# Duration format: 30s, 5m, 1h")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides use the VOXETL_ prefix:")
	fmt.Println("#   VOXETL_SERVER_HOST, VOXETL_SERVER_PORT")
	fmt.Println("#   VOXETL_TRANSCRIPTION_API_KEY, VOXETL_STORAGE_ENDPOINT")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
