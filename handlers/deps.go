package handlers

import (
	"student-tracker/config"
	"student-tracker/services"
)

// Collaborators are constructed in main and handed to the handlers
// package once at startup; handlers never build their own store client.
var (
	sheetStore *services.SheetStore
	engine     *services.Engine
	directory  *services.Directory
	notifier   services.Sender
	cfg        *config.Config
)

// Configure wires the handler package to its collaborators.
func Configure(store *services.SheetStore, e *services.Engine, d *services.Directory, n services.Sender, c *config.Config) {
	sheetStore = store
	engine = e
	directory = d
	notifier = n
	cfg = c
}
