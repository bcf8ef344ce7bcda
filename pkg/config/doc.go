// Package config loads the sinn7play configuration from YAML with
// SINN7_ environment overrides.
//
// Invalid values never fail a load. They are replaced by defaults and
// returned as warnings, so a typo in one field does not prevent playback.
package config
