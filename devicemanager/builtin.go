package devicemanager

import "libweave/value"

// builtinComponentPath is where the always-present base and
// _accessRevocationList traits live, on every device regardless of what
// the embedder adds (4.I).
const builtinComponentPath = "base"

func builtinTraitDefs() map[string]value.Value {
	return map[string]value.Value{
		"base": value.MapV(map[string]value.Value{
			"commands": value.MapV(map[string]value.Value{
				"updateBaseConfiguration": value.MapV(map[string]value.Value{
					"minimalRole": value.StringV("owner"),
				}),
				"updateDeviceInfo": value.MapV(map[string]value.Value{
					"minimalRole": value.StringV("owner"),
				}),
			}),
			"state": value.MapV(map[string]value.Value{
				"name":                        stringProp(),
				"description":                 stringProp(),
				"location":                    stringProp(),
				"localDiscoveryEnabled":       boolProp(),
				"localAnonymousAccessMaxRole": stringProp(),
				"localPairingEnabled":         boolProp(),
			}),
		}),
		"_accessRevocationList": value.MapV(map[string]value.Value{
			"commands": value.MapV(map[string]value.Value{
				"revoke": value.MapV(map[string]value.Value{
					"minimalRole": value.StringV("owner"),
				}),
				"list": value.MapV(map[string]value.Value{
					"minimalRole": value.StringV("manager"),
				}),
			}),
			"state": value.MapV(map[string]value.Value{
				"capacity": value.MapV(map[string]value.Value{
					"type":        value.StringV("integer"),
					"minimalRole": value.StringV("manager"),
				}),
			}),
		}),
	}
}

func stringProp() value.Value {
	return value.MapV(map[string]value.Value{"type": value.StringV("string")})
}

func boolProp() value.Value {
	return value.MapV(map[string]value.Value{"type": value.StringV("boolean")})
}
