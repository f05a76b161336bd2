package shell

// ZshPlugin is the zsh plugin source. A precmd hook refreshes the segment and
// RPROMPT shows it.
const ZshPlugin = `# pomotrack prompt segment, auto-generated, do not edit manually
# Source this file from your ~/.zshrc:
#   source ~/.config/pomotrack/pomotrack.prompt.zsh

_pomotrack_data_dir="${XDG_DATA_HOME:-$HOME/.local/share}/pomotrack"

_pomotrack_precmd() {
  POMOTRACK_SEGMENT=""
  # Skip the call entirely until pomotrack has stored anything.
  [[ -d "$_pomotrack_data_dir" ]] || return
  POMOTRACK_SEGMENT="$(pomotrack status --short 2>/dev/null)"
}

setopt PROMPT_SUBST
autoload -Uz add-zsh-hook
add-zsh-hook precmd _pomotrack_precmd
RPROMPT='${POMOTRACK_SEGMENT}'"${RPROMPT:+ $RPROMPT}"
`
