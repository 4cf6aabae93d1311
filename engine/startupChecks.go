package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/drummonds/officepreview/config"
)

// StartupChecks performs all the checks to make sure everything works
func StartupChecks(serverConfig config.ServerConfig) error {
	if err := directoryChecks("file", serverConfig.FileDir); err != nil {
		return err
	}
	if err := directoryChecks("source", SourceDir(serverConfig)); err != nil {
		return err
	}
	converterChecks(serverConfig)
	return nil
}

// SourceDir is where remote sources are downloaded
func SourceDir(serverConfig config.ServerConfig) string {
	return filepath.Join(serverConfig.FileDir, "sources")
}

// converterChecks warns about engines that will fail at conversion time
func converterChecks(serverConfig config.ServerConfig) {
	switch serverConfig.ConverterType {
	case "soffice":
		if err := config.CheckExecutable(serverConfig.SofficePath, Logger); err != nil {
			Logger.Warn("LibreOffice not found, office conversion will fail", "path", serverConfig.SofficePath)
		}
	default:
		if serverConfig.GotenbergURL == "" {
			Logger.Warn("Gotenberg url not configured, office conversion will fail")
		}
		// spreadsheet html view always runs locally
		if _, err := os.Stat(serverConfig.SofficePath); err != nil {
			Logger.Info("LibreOffice not found, spreadsheet html view will be unavailable", "path", serverConfig.SofficePath)
		}
	}
}

// directoryChecks ensures a working directory exists
func directoryChecks(name, path string) error {
	if path == "" {
		Logger.Warn("Directory not configured", "directory", name)
		return fmt.Errorf("%s directory not configured", name)
	}

	// Check if directory exists
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			Logger.Info("Creating directory", "directory", name, "path", path)
			err = os.MkdirAll(path, 0755)
			if err != nil {
				Logger.Error("Failed to create directory", "directory", name, "path", path, "error", err)
				return err
			}
			return nil
		}
		Logger.Error("Error checking directory", "directory", name, "path", path, "error", err)
		return err
	}

	// Check if it's actually a directory
	if !info.IsDir() {
		Logger.Error("Path exists but is not a directory", "directory", name, "path", path)
		return fmt.Errorf("%s path is not a directory: %s", name, path)
	}

	Logger.Debug("Directory exists", "directory", name, "path", path)
	return nil
}
