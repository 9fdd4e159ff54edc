package guard

import "context"

func withShell(ctx context.Context, shell bool) context.Context {
	return context.WithValue(ctx, shellKey{}, shell)
}

// ShellFromContext reports whether the guard asked for the side navigation.
func ShellFromContext(ctx context.Context) bool {
	shell, _ := ctx.Value(shellKey{}).(bool)
	return shell
}
