// Package file provides the TOML configuration store. Settings live in
// config.toml inside the Mahuta home directory.
package file
