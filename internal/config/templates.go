package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "node":
		return nodeTemplate, nil
	case "router":
		return routerTemplate, nil
	case "params":
		return paramsTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const nodeTemplate = `[node]
name = "arm"
namespace = "/robot"
domain_id = 0

[interface]
mode = "peer"
locator = "tcp/0.0.0.0:7447"
max_connect_attempts = 0

[service]
reply_buf_size = 4096

[service.type_hashes]
# set_parameters = "RIHS01_..."

[parameters]
file = "params.toml"
watch = true

[admin]
addr = "127.0.0.1:9090"
cors_origins = ["http://localhost:3000"]
metrics = true
# token = "change-me"

[tracing]
# endpoint = "localhost:4318"
insecure = true
service_name = "paramnode"
sample_ratio = 1.0

[session]
connect_timeout = "5s"
handshake_timeout = "5s"
write_timeout = "15s"
idle_timeout = "0s"
query_timeout = "10s"
security_mode = "development"
`

const routerTemplate = `[router]
locator = "tcp/0.0.0.0:7447"
require_identity_binding = false
admin_addr = "127.0.0.1:9091"
# admin_token = "change-me"

[session]
handshake_timeout = "5s"
write_timeout = "15s"
idle_timeout = "0s"
security_mode = "development"
`

const paramsTemplate = `[[parameter]]
name = "motor/rate"
type = "integer"
description = "control loop rate in Hz"
value = 50
integer_range = { min = 10, max = 100, step = 10 }

[[parameter]]
name = "motor/gain"
type = "double"
value = 1.5
float_range = { min = 0.0, max = 10.0, step = 0.0 }

[[parameter]]
name = "serial"
type = "string"
read_only = true
value = "SN-0001"
`
