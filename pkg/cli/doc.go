/*
Package cli provides helpers shared by the wagf commands.

Tables:

Trace records and outcome summaries render as terminal or Markdown tables,
or as JSON:

	format, err := cli.ParseOutputFormat(outputFlag)
	if err := cli.RenderSummary(os.Stdout, summary, format); err != nil {
		return err
	}

Progress:

	progress := cli.NewStepProgress(os.Stderr)
	progress.Start(cfg.Simulation.Steps)
	// after each step
	progress.Step(runningSummary)
	progress.Finish()

Signals and exit codes:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
	...
	os.Exit(cli.ExitCode(err))
*/
package cli
