// Package vehicleci provides a reusable vehicle application pipeline that can be embedded into other Go applications.
//
// # Overview
//
// vehicle-ci builds, validates, runs, and integration-tests a single-source-file
// vehicle application. It resolves the application source from a fixed set of
// input channels, drives the external build toolchain, supervises the built
// binary under a wall-clock timeout, and evaluates quality gates over the
// collected measurements.
//
// # Basic Usage
//
// Create a pipeline programmatically:
//
//	cfg := &vehicleci.Config{
//		Workspace: vehicleci.WorkspaceConfig{Dir: "/workspace"},
//		Auth: vehicleci.AuthConfig{
//			APIKeys: []vehicleci.APIKey{
//				{Name: "my-app", Key: "secret-key-here"},
//			},
//		},
//	}
//
//	p, err := vehicleci.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := p.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Using with Existing HTTP Server
//
// Integrate the pipeline API into an existing HTTP server:
//
//	p, err := vehicleci.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Mount the API under a specific path
//	http.Handle("/ci/", http.StripPrefix("/ci", p.Handler()))
//
//	http.ListenAndServe(":8080", nil)
//
// # Direct Service Access
//
// Access the service layer directly for programmatic control:
//
//	p, err := vehicleci.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	svc := p.Service()
//
//	report, err := svc.Build(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("build %s: %s\n", report.RunID, report.Build.Status)
package vehicleci
