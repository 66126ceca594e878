package hanabi

import (
	"fmt"
	"strconv"

	"github.com/horgh/config"
)

// Config holds the process-wide, startup-time configuration the
// specification calls out as an external collaborator: port, hostname,
// MOTD path, optional password, and network naming used in the greeting
// numerics.
type Config struct {
	Port     uint16
	Hostname string

	// MOTD is a filesystem path to the message-of-the-day file. Blank means
	// no MOTD is configured; the MOTD command then replies 422.
	MOTD string

	// Password, when non-blank, is required via PASS before registration
	// completes.
	Password string

	NetworkName      string
	NetworkCreatedOn string
}

// LoadConfig reads a key=value configuration file in the same format the
// rest of this corpus uses (github.com/horgh/config's ReadStringMap), then
// checks required keys are present and parses them into a Config,
// following the same required-keys-then-assign shape as the teacher's
// checkAndParseConfig.
func LoadConfig(path string) (*Config, error) {
	configMap, err := config.ReadStringMap(path)
	if err != nil {
		return nil, err
	}

	requiredKeys := []string{"port", "hostname"}
	for _, key := range requiredKeys {
		v, exists := configMap[key]
		if !exists {
			return nil, fmt.Errorf("missing required key: %s", key)
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("configuration value is blank: %s", key)
		}
	}

	port64, err := strconv.ParseUint(configMap["port"], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("port is not valid: %s", err)
	}

	cfg := &Config{
		Port:             uint16(port64),
		Hostname:         configMap["hostname"],
		MOTD:             configMap["motd"],
		Password:         configMap["password"],
		NetworkName:      configMap["network-name"],
		NetworkCreatedOn: configMap["network-created-on"],
	}

	return cfg, nil
}
