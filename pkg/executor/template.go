package executor

import "strings"

// renderArgs substitutes template placeholders in an adapter's execute args.
// A token equal to {{args}} expands in place to the pre-expanded extra
// tokens; every other placeholder is replaced literally inside its token.
func renderArgs(templateArgs []string, vars map[string]string, extraArgs []string) []string {
	out := make([]string, 0, len(templateArgs)+len(extraArgs))
	for _, arg := range templateArgs {
		if arg == "{{args}}" {
			out = append(out, extraArgs...)
			continue
		}
		for key, val := range vars {
			arg = strings.ReplaceAll(arg, "{{"+key+"}}", val)
		}
		out = append(out, arg)
	}
	return out
}

func templateVars(task RoleTask, workspace string) map[string]string {
	return map[string]string{
		"prompt":           task.Prompt,
		"task_id":          task.TaskID,
		"task_title":       task.Title,
		"task_description": task.Description,
		"role":             string(task.Role),
		"workspace":        workspace,
	}
}
