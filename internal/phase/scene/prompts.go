package scene

const extractSystem = `You are a storyboard artist reading a novel. You pick moments that make
strong single illustrations and describe them precisely enough for an illustrator
who has not read the book.`

const extractUser = `{{- if .Characters}}## Characters
{{.Characters}}

{{end -}}
## Chapter {{.CollectionID}}, Act {{.UnitIndex}}
{{.Content}}

Divide this act into {{.Total}} equal parts in reading order and describe the single
most visual moment of part {{.ItemIndex}}.

Return ONLY this JSON object:
{
  "scene_number": {{.ItemIndex}},
  "scene_description": "<what is happening right now, 2-3 sentences>",
  "characters_present": ["<name>"],
  "setting": "<specific location, time of day, weather>",
  "mood": "<emotional tone>",
  "action": "<the single most important visual action>",
  "camera_angle": "<wide establishing|mid|close-up|low angle|over-shoulder>"
}`
