package pack

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

const appPayloadDirName = "App"

// Either script name satisfies the app-payload convention.
var uwpInstallScripts = []string{"InstallApp.cmd", "InstallApp.ps1"}

const installAllScriptName = "InstallAllApps.cmd"

// installAllScript drives every per-package install script in the pack.
const installAllScript = "@echo off\r\n" +
	"rem Installs every app payload in this pack.\r\n" +
	"for /D %%P in (\"%~dp0*\") do (\r\n" +
	"  if exist \"%%P\\InstallApp.cmd\" call \"%%P\\InstallApp.cmd\"\r\n" +
	"  if exist \"%%P\\InstallApp.ps1\" powershell -ExecutionPolicy Bypass -File \"%%P\\InstallApp.ps1\"\r\n" +
	")\r\n"

// stageUWP routes a UWP package: the extracted payload must contain the App
// directory and one recognized install script, both copied into the package
// destination. Packages lacking either are skipped by the caller.
func stageUWP(fs afero.Fs, extractDir, destDir string) error {
	appDir := filepath.Join(extractDir, appPayloadDirName)
	info, err := fs.Stat(appDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("package has no %s payload directory", appPayloadDirName)
	}

	script := ""
	for _, name := range uwpInstallScripts {
		if _, err := fs.Stat(filepath.Join(extractDir, name)); err == nil {
			script = name

			break
		}
	}
	if script == "" {
		return fmt.Errorf("package has no install script (%v)", uwpInstallScripts)
	}

	if err := copyTree(fs, appDir, filepath.Join(destDir, appPayloadDirName)); err != nil {
		return fmt.Errorf("cannot copy app payload: %w", err)
	}

	return copyFile(fs, filepath.Join(extractDir, script), filepath.Join(destDir, script))
}

func writeInstallAllScript(fs afero.Fs, workDir string) error {
	return afero.WriteFile(fs, filepath.Join(workDir, installAllScriptName), []byte(installAllScript), 0o644)
}
