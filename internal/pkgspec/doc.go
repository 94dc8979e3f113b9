// Package pkgspec parses bundle requests.
//
// A request is a comma separated list of package tokens:
//
//	[@scope/]name[@versionSpec][/deepPath]
//
// The version spec may be an exact version, a dist-tag or a semver range and
// defaults to "latest". Parsing never contacts the registry.
package pkgspec
