package shell

// BashPlugin is the bash plugin source. It refreshes POMOTRACK_SEGMENT before
// each prompt and prepends it to PS1 when a timer is active.
const BashPlugin = `# pomotrack prompt segment, auto-generated, do not edit manually
# Source this file from your ~/.bashrc:
#   source ~/.config/pomotrack/pomotrack.prompt.bash

_pomotrack_data_dir="${XDG_DATA_HOME:-$HOME/.local/share}/pomotrack"
_pomotrack_ps1="$PS1"

_pomotrack_precmd() {
  POMOTRACK_SEGMENT=""
  [[ -d "$_pomotrack_data_dir" ]] && POMOTRACK_SEGMENT="$(pomotrack status --short 2>/dev/null)"
  if [[ -n "$POMOTRACK_SEGMENT" ]]; then
    PS1="[$POMOTRACK_SEGMENT] $_pomotrack_ps1"
  else
    PS1="$_pomotrack_ps1"
  fi
}

PROMPT_COMMAND="_pomotrack_precmd${PROMPT_COMMAND:+;$PROMPT_COMMAND}"
`
