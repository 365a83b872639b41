package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-voice/internal/console"
)

const menuText = `
========================================
CHOOSE AN OPTION:
1. Continuous interactive mode
2. Single interaction
3. Test components
4. Exit
========================================`

// RunMenu shows the mode menu until the user exits or input closes, then
// releases resources once.
func (a *Assistant) RunMenu(ctx context.Context, in console.LineReader) error {
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warn("cleanup failed", slog.String("error", err.Error()))
		}
	}()
	for ctx.Err() == nil {
		fmt.Fprintln(a.out, menuText)
		choice, err := in.ReadLine("Enter your choice (1-4): ")
		if err != nil {
			if errors.Is(err, console.ErrClosed) {
				return nil
			}
			return err
		}
		switch choice {
		case "1":
			if err := a.RunInteractive(ctx); err != nil {
				fmt.Fprintf(a.out, "❌ %v\n", err)
			}
		case "2":
			if err := a.RunOnce(ctx); err != nil {
				fmt.Fprintf(a.out, "❌ %v\n", err)
			}
		case "3":
			a.SelfTest(ctx)
		case "4":
			fmt.Fprintln(a.out, "👋 Exiting...")
			return nil
		default:
			fmt.Fprintln(a.out, "⚠️ Invalid option. Try again.")
		}
	}
	return ctx.Err()
}
