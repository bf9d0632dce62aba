// Package appid holds the application's identity: the binary, config
// directory and environment prefix names shared by the CLI, config loader
// and version surfaces.
package appid

import (
	"github.com/fulmenhq/gofulmen/appidentity"
)

const (
	Vendor      = "formscout"
	BinaryName  = "formscout"
	ConfigName  = "formscout"
	EnvPrefix   = "FORMSCOUT_"
	Description = "Locate and validate official real estate form documents"
)

// Get returns the application identity.
func Get() *appidentity.Identity {
	return &appidentity.Identity{
		Vendor:      Vendor,
		BinaryName:  BinaryName,
		ConfigName:  ConfigName,
		EnvPrefix:   EnvPrefix,
		Description: Description,
	}
}
