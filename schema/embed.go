package schema

import _ "embed"

// ConfigV1Schema contains the JSON schema for supervisor configuration files.
//
//go:embed procsup.v1.json
var ConfigV1Schema []byte
