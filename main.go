package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/luishsr/rustvm/pkg/auth"
	"github.com/luishsr/rustvm/pkg/configuration"
	"github.com/luishsr/rustvm/pkg/logger"
	"github.com/luishsr/rustvm/pkg/stackvm"
	"github.com/luishsr/rustvm/pkg/store"
	"github.com/luishsr/rustvm/pkg/terminal"
)

// main only translates run's exit code; run owns the deferred cleanup, which
// an os.Exit further down the call chain would skip.
func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <program_file.rm>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s serve\n", os.Args[0])
		return 1
	}

	// Initialize configuration before everything else
	configPath := "settings.cfg"
	if err := configuration.Initialize(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing configuration: %v\n", err)
		return 1
	}

	if err := logger.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		return 1
	}
	defer logger.Close()

	if os.Args[1] == "serve" {
		return runServer()
	}

	return runProgram(os.Args[1])
}

// runProgram translates and executes a program file against stdin/stdout.
// Every runtime error is fatal: print it and report a non-zero exit code.
func runProgram(path string) int {
	logger.Info(logger.AreaInterpreter, "Running program file: %s", path)

	program, err := stackvm.TranslateFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	machine := stackvm.New(os.Stdin, os.Stdout)
	if err := machine.Run(program, path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Println("Program executed successfully.")
	return 0
}

// runServer starts the web terminal: auth endpoints plus the websocket
// interpreter sessions, backed by the SQLite program store.
func runServer() int {
	logger.ConfigInfo("Server mode - configuration loaded from settings.cfg")

	dbPath := configuration.GetString("Database", "db_file", "rustvm.db")
	st, err := store.InitDB(dbPath)
	if err != nil {
		logger.Error(logger.AreaDatabase, "Database initialization failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer st.Close()

	if err := st.CreateTables(); err != nil {
		logger.Error(logger.AreaDatabase, "Table creation failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	auth.SetAccountStore(st)
	handler := terminal.NewHandler(st)

	http.HandleFunc("/api/auth/session", auth.HandleCreateSession)
	http.HandleFunc("/api/auth/login", auth.HandleLogin)
	http.HandleFunc("/api/auth/validate", auth.HandleTokenValidation)
	http.HandleFunc("/ws", handler.HandleWebSocket)

	port := configuration.GetString("Server", "http_port", "8080")
	logger.Info(logger.AreaGeneral, "Starting HTTP server on port %s", port)

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		logger.Error(logger.AreaGeneral, "HTTP server startup failed: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
