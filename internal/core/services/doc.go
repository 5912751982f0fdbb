// Package services implements the driving port interfaces.
// Services contain the storage layer's logic - index lifecycle, document
// transforms, the write paths, the scan read path and the aggregate path -
// and orchestrate calls to driven ports (adapters).
package services
