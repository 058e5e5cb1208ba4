// Cinch - branch/tenant SQLite storage engine CLI
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/engine"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		fs := flag.NewFlagSet("init", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		err = runInit(fs.Args())
	case "version":
		fs := flag.NewFlagSet("version", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		fmt.Printf("cinch v%s\n", version)
		return
	case "status":
		fs := flag.NewFlagSet("status", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		err = runStatus(fs.Args())
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `cinch v%s - branch/tenant SQLite storage engine

Usage: cinch <command> [path]

Commands:
  init [path]    Initialize a new project (default: current directory)
  status [path]  Show per-tenant file sizes and schema versions
  version        Show version

For more info: https://github.com/cinchdb/cinchdb
`, version)
}

func targetPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func runInit(args []string) error {
	root := targetPath(args)
	e, err := engine.Init(root)
	if err != nil {
		return err
	}
	defer e.Close()
	fmt.Printf("initialized cinch project at %s\n", root)
	return nil
}

func runStatus(args []string) error {
	root := targetPath(args)
	e, err := engine.Open(root)
	if err != nil {
		return err
	}
	defer e.Close()

	fmt.Printf("project: %s\n", root)
	fmt.Printf("active database: %s\n", e.Config.ActiveDatabase)
	fmt.Printf("active branch: %s\n", e.Config.ActiveBranch)

	tenants, err := e.Meta.ListTenants(e.Config.ActiveDatabase, e.Config.ActiveBranch)
	if err != nil {
		return err
	}
	if len(tenants) == 0 {
		fmt.Println("no tenants registered")
		return nil
	}

	for _, tenant := range tenants {
		path := e.Layout.TenantFile(e.Config.ActiveDatabase, e.Config.ActiveBranch, tenant)
		info, statErr := os.Stat(path)
		size := "0 B"
		if statErr == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		version, err := e.Meta.GetSchemaVersion(e.Config.ActiveDatabase, e.Config.ActiveBranch, tenant)
		if err != nil && !cincherr.Is(err, cincherr.NotFound) {
			return err
		}
		if version == "" {
			version = "(none)"
		}
		fmt.Printf("  %-16s %10s  schema_version=%s\n", tenant, size, version)
	}
	return nil
}
