package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"nimbus/internal/audit"
	"nimbus/internal/config"
	"nimbus/internal/constants"
	"nimbus/internal/database"
	"nimbus/internal/directory"
	"nimbus/internal/logger"
	"nimbus/internal/server"
	"nimbus/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", constants.AppName, version.Version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", constants.AppName, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfigFrom(configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return err
	}
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = filepath.Join(config.GetConfigDir(), "data")
	}

	if err := config.InitializeWorkingDirectory(cfg.WorkingDirectory); err != nil {
		return err
	}

	log := logger.NewLoggerWithOptions(logger.Options{
		Level:         cfg.LogLevel,
		WorkDir:       cfg.WorkingDirectory,
		WriteToStdout: true,
	})
	defer log.Close()

	dbPath := filepath.Join(cfg.WorkingDirectory, constants.InternalDir, constants.DirectoryDB)
	db, err := database.InitDirectoryDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	app := server.NewApp(cfg, log)
	app.SetDB(db)

	result, err := directory.Bootstrap(app.Directory, log)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	if result != nil {
		printBootstrapCredentials(result)
		// The digest lets an operator later prove which secret was issued
		// without the trail ever holding the secret itself.
		if err := app.Audit.Record(audit.Entry{
			RequestID:    "bootstrap",
			Flavor:       constants.AuditFlavorGeneric,
			PrincipalARN: fmt.Sprintf(constants.UserARNFormat, cfg.AccountID, result.UserName),
			Action:       "iam:CreateUser",
			Resource:     result.SecretDigest,
			Outcome:      constants.AuditOutcomeAllowed,
		}); err != nil {
			log.Warn("Failed to record bootstrap audit entry: %v", err)
		}
	}

	if !cfg.AccessValidationEnabled() {
		log.Warn("Access validation is DISABLED; all requests are accepted")
	}

	return server.NewServer(app).Start()
}

// printBootstrapCredentials shows the root credentials exactly once, on the
// first start against an empty directory.
func printBootstrapCredentials(result *directory.BootstrapResult) {
	fmt.Println()
	fmt.Println("  ============================================================")
	fmt.Println("  FIRST START: root credentials created")
	fmt.Println("  ------------------------------------------------------------")
	fmt.Printf("  User:              %s\n", result.UserName)
	fmt.Printf("  Access key id:     %s\n", result.AccessKeyID)
	fmt.Printf("  Secret access key: %s\n", result.SecretAccessKey)
	fmt.Println("  ------------------------------------------------------------")
	fmt.Println("  The secret is not stored in plaintext and cannot be shown")
	fmt.Println("  again. Save it now.")
	fmt.Println("  ============================================================")
	fmt.Println()
}
