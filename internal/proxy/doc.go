// Package proxy defines the core types, collaborator interfaces, and error
// taxonomy shared by the metadata and image pipelines.
package proxy
