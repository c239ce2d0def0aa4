package main

import "github.com/adboost/adboostctl/config"

type Command struct {
	Version struct{} `cmd:"" help:"Print version information."`
	Package struct {
		Project  string              `help:"project directory path" short:"p" default:"."`
		Dest     string              `help:"directory the archive is written to, defaults to the project directory" short:"o"`
		Prefix   string              `help:"archive prefix" default:"${default_prefix}"`
		Exclude  []string            `help:"glob patterns of files and directories to leave out" short:"x"`
		MaxSize  config.SizeArgument `help:"maximum uncompressed bytes per archive"`
		Database string              `help:"database path, packages are recorded when set" short:"d"`
		DryRun   bool                `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Package the project directory into a timestamped zip archive."`
	Deploy struct {
		Config   string `help:"pipeline config file path, the default pipeline is used when empty" short:"c"`
		Project  string `help:"project directory path" short:"p" default:"."`
		Database string `help:"database path, runs are recorded when set" short:"d"`
		DryRun   bool   `help:"log every step without running it"`
	} `cmd:"" help:"Run the deployment pipeline."`
	Backup struct {
		Config   string `help:"backup config file path, the default job is used when empty" short:"c"`
		Job      string `help:"name of the job to run, defaults to the first job"`
		Database string `help:"database path, runs are recorded when set" short:"d"`
	} `cmd:"" help:"Run a backup job now."`
	Daemon struct {
		Config   string `help:"backup config file path" short:"c" required:""`
		Database string `help:"database path, runs are recorded when set" short:"d"`
		DryRun   bool   `help:"log scheduled runs without running the backup commands"`
	} `cmd:"" help:"Run the backup scheduler."`
	Clean struct {
		Source   string `help:"only clean up packages of this project directory" short:"s"`
		Database string `help:"database path" short:"d" required:""`
		Keep     int    `help:"number of newest packages to keep per project" default:"5"`
		DryRun   bool   `help:"don't delete anything, just print the output"`
	} `cmd:"" help:"Delete old packages."`
	History struct {
		Database string `help:"database path" short:"d" required:""`
		Kind     string `help:"history to show" enum:"packages,pipelines,backups" default:"pipelines"`
		Name     string `help:"only show pipeline or backup runs with this name"`
		Source   string `help:"only show packages of this project directory" short:"s"`
		Limit    int    `help:"maximum number of records to show" default:"20"`
	} `cmd:"" help:"Show recorded packages and runs."`
	Init struct {
		Project string `help:"project directory path" short:"p" default:"."`
		Install bool   `help:"run npm install in every project folder with a package.json"`
		Seed    bool   `help:"load the demo data with the backend seed script"`
		Compose bool   `help:"start the stack with docker-compose up --build"`
		DryRun  bool   `help:"don't write any files, just print the output"`
	} `cmd:"" help:"Create the project folder layout."`
	Preview struct {
		Dir  string `help:"directory with the built frontend" default:"frontend/dist"`
		Addr string `help:"listen address" default:"${preview_addr}"`
	} `cmd:"" help:"Serve the built frontend locally."`
}
